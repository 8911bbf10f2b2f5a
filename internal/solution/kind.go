// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package solution

import (
	"fmt"
	"strings"
)

// Kind names an artifact generator.
type Kind string

const (
	KindCost          Kind = "cost"
	KindArchitecture  Kind = "architecture"
	KindCFN           Kind = "cfn"
	KindCDK           Kind = "cdk"
	KindDocumentation Kind = "documentation"
)

// Kinds lists every generator in the order GenerateAll runs them.
var Kinds = []Kind{KindCost, KindArchitecture, KindCDK, KindCFN, KindDocumentation}

var kindAliases = map[string]Kind{
	"cost":           KindCost,
	"costs":          KindCost,
	"architecture":   KindArchitecture,
	"arch":           KindArchitecture,
	"diagram":        KindArchitecture,
	"cfn":            KindCFN,
	"cloudformation": KindCFN,
	"cdk":            KindCDK,
	"documentation":  KindDocumentation,
	"doc":            KindDocumentation,
	"docs":           KindDocumentation,
}

// ParseKind accepts a kind name or a common alias.
func ParseKind(s string) (Kind, error) {
	if k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Title is the transcript heading for the kind.
func (k Kind) Title() string {
	switch k {
	case KindCost:
		return "Cost Analysis"
	case KindArchitecture:
		return "Solution Architecture"
	case KindCFN:
		return "CloudFormation Template"
	case KindCDK:
		return "CDK Template"
	case KindDocumentation:
		return "Technical Documentation"
	default:
		return string(k)
	}
}

// UseCase is the feedback label for the kind.
func (k Kind) UseCase() string {
	return "generate_" + string(k)
}
