package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Namespace is the cache-key prefix that scopes a fingerprint's TTL and
// invalidation policy.
type Namespace string

const (
	NamespaceLLM      Namespace = "llm"
	NamespaceAnalysis Namespace = "analysis"
)

// schemaVersion is a single ASCII digit prefixed to every cache key so a
// hashing-strategy change invalidates every existing entry at once.
const schemaVersion = "1"

// TemperatureBand is the caller's requested LLM sampling temperature,
// bucketed. Only the low band is cache-eligible (§4.2).
type TemperatureBand string

const (
	TemperatureLow    TemperatureBand = "low"
	TemperatureMedium TemperatureBand = "medium"
	TemperatureHigh   TemperatureBand = "high"
)

func hashHex(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return strings.ToLower(hex.EncodeToString(h.Sum(nil)))
}

// File derives the fingerprint for one code file: "file:"‖path‖"\0"‖language‖"\0"‖content.
func File(path, language, content string) string {
	return hashHex("file:", path, "\x00", language, "\x00", content)
}

// Image derives the fingerprint for a screenshot, keyed the same way as a
// code file but without a language component.
func Image(path, content string) string {
	return hashHex("image:", path, "\x00", content)
}

// LLMRequest derives the fingerprint for an LLM request: model, system
// prompt, user prompt, canonicalized context, and temperature band — the
// exact ordering the Dispatcher's cache-before-dispatch path hashes on.
func LLMRequest(model, systemPrompt, userPrompt, canonicalContext string, band TemperatureBand) string {
	return hashHex("llm:", model, "\x00", systemPrompt, "\x00", userPrompt, "\x00", canonicalContext, "\x00", string(band))
}

// CacheKey builds the namespaced, schema-versioned Redis key for a raw
// fingerprint hash.
func CacheKey(ns Namespace, hash string) string {
	return schemaVersion + ":" + string(ns) + ":" + hash
}
