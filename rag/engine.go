package rag

import (
	"github.com/ragstack/localrag/rag/interfaces"
	"github.com/ragstack/localrag/rag/types"
)

// Engine is an alias for interfaces.Engine
type Engine = interfaces.Engine

// Result is an alias for types.Result
type Result = types.Result
