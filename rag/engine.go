package rag

import (
	"github.com/mudler/hybridrecall/rag/interfaces"
	"github.com/mudler/hybridrecall/rag/types"
)

// Indexer is an alias for interfaces.Indexer
type Indexer = interfaces.Indexer

// DocumentRef is an alias for types.DocumentRef
type DocumentRef = types.DocumentRef

// FusedResult is an alias for types.FusedResult
type FusedResult = types.FusedResult
