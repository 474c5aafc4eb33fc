package llmrouter

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/agentmesh/coordinator/provider"
)

// tokenEstimator wraps tiktoken-go with a process-wide encoding cache,
// grounded on the teacher's utils.TokenCounter. Falls back to the
// 4-chars-per-token heuristic if no encoding can be loaded.
type tokenEstimator struct {
	mu        sync.RWMutex
	encodings map[string]*tiktoken.Tiktoken
}

func newTokenEstimator() *tokenEstimator {
	return &tokenEstimator{encodings: make(map[string]*tiktoken.Tiktoken)}
}

func (e *tokenEstimator) estimate(text string) int {
	enc := e.encodingFor("cl100k_base")
	if enc == nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

func (e *tokenEstimator) encodingFor(name string) *tiktoken.Tiktoken {
	e.mu.RLock()
	if enc, ok := e.encodings[name]; ok {
		e.mu.RUnlock()
		return enc
	}
	e.mu.RUnlock()

	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil
	}
	e.mu.Lock()
	e.encodings[name] = enc
	e.mu.Unlock()
	return enc
}

// keywordTaskType maps prompt keywords to a task type, default generation.
func keywordTaskType(prompt string) provider.TaskType {
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "debug"):
		return provider.TaskDebugging
	case strings.Contains(lower, "summarize"):
		return provider.TaskSummarization
	case strings.Contains(lower, "research"):
		return provider.TaskResearch
	default:
		return provider.TaskGeneration
	}
}

// estimateCharacteristics builds a TaskCharacteristics from a raw prompt
// when the caller supplies none explicitly.
func (e *tokenEstimator) estimateCharacteristics(prompt string, opts provider.Options) provider.TaskCharacteristics {
	contextSize := e.estimate(prompt)
	expectedOutput := opts.MaxTokens
	if expectedOutput == 0 {
		expectedOutput = contextSize / 2
	}

	roleBoost := 0
	role := opts.Role
	if role == "architect" || role == "research" {
		roleBoost = criticalThreshold
	}

	complexity := complexityFor(maxInt(contextSize, maxInt(expectedOutput, roleBoost)))
	if role == "architect" || role == "research" {
		complexity = maxComplexity(complexity, provider.ComplexityCritical)
	}

	return provider.TaskCharacteristics{
		TaskType:             keywordTaskType(prompt),
		Complexity:           complexity,
		ContextSize:          contextSize,
		ExpectedOutputTokens: expectedOutput,
		AgentRole:            role,
	}
}

const (
	lowThreshold      = 1000
	mediumThreshold   = 4000
	highThreshold     = 16000
	criticalThreshold = 32000
)

func complexityFor(n int) provider.Complexity {
	switch {
	case n >= criticalThreshold:
		return provider.ComplexityCritical
	case n >= highThreshold:
		return provider.ComplexityHigh
	case n >= mediumThreshold:
		return provider.ComplexityMedium
	default:
		return provider.ComplexityLow
	}
}

var complexityRank = map[provider.Complexity]int{
	provider.ComplexityLow:      0,
	provider.ComplexityMedium:   1,
	provider.ComplexityHigh:     2,
	provider.ComplexityCritical: 3,
}

func maxComplexity(a, b provider.Complexity) provider.Complexity {
	if complexityRank[a] >= complexityRank[b] {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
