// Package all registers every provider with a single import. Instead of
// importing each provider individually:
//
//	import (
//	    _ "github.com/hanyun2019/mcp-on-aws-demo/runtime/providers/claude"
//	    _ "github.com/hanyun2019/mcp-on-aws-demo/runtime/providers/ollama"
//	    _ "github.com/hanyun2019/mcp-on-aws-demo/runtime/providers/openai"
//	)
//
// You can simply import this package:
//
//	import _ "github.com/hanyun2019/mcp-on-aws-demo/runtime/providers/all"
package all

import (
	// Register Claude provider (Anthropic API and AWS Bedrock)
	_ "github.com/hanyun2019/mcp-on-aws-demo/runtime/providers/claude"

	// Register Mock provider (for testing and offline runs)
	_ "github.com/hanyun2019/mcp-on-aws-demo/runtime/providers/mock"

	// Register Ollama provider (local models)
	_ "github.com/hanyun2019/mcp-on-aws-demo/runtime/providers/ollama"

	// Register OpenAI provider
	_ "github.com/hanyun2019/mcp-on-aws-demo/runtime/providers/openai"
)
