package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_Deterministic(t *testing.T) {
	headers := []Header{{Name: "Accept", Values: []string{"application/json"}}}

	a := Fingerprint("https://api.example.com/posts", headers, "page=1", "json")
	b := Fingerprint("https://api.example.com/posts", headers, "page=1", "json")

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "rest:"))
	assert.Len(t, a, len("rest:")+32)
}

func TestFingerprint_EachPartMatters(t *testing.T) {
	base := Key{
		URL:          "https://api.example.com/posts",
		Headers:      []Header{{Name: "Accept", Values: []string{"application/json"}}},
		Query:        "page=1",
		ResponseType: "json",
	}
	kg := DefaultKeyGenerator()
	want := kg.GenerateKey(base)

	for name, mutate := range map[string]func(k *Key){
		"url":           func(k *Key) { k.URL += "/1" },
		"header name":   func(k *Key) { k.Headers = []Header{{Name: "Accept-Language", Values: []string{"application/json"}}} },
		"header value":  func(k *Key) { k.Headers = []Header{{Name: "Accept", Values: []string{"text/plain"}}} },
		"extra value":   func(k *Key) { k.Headers = []Header{{Name: "Accept", Values: []string{"application/json", "text/plain"}}} },
		"query":         func(k *Key) { k.Query = "page=2" },
		"response type": func(k *Key) { k.ResponseType = "text" },
	} {
		t.Run(name, func(t *testing.T) {
			k := base
			mutate(&k)
			assert.NotEqual(t, want, kg.GenerateKey(k))
		})
	}
}

func TestFingerprint_NoAmbiguousJoins(t *testing.T) {
	a := Fingerprint("a,b", nil, "c", "json")
	b := Fingerprint("a", nil, "b,c", "json")
	assert.NotEqual(t, a, b)

	c := Fingerprint("u", []Header{{Name: "X", Values: []string{"1", "2"}}}, "", "json")
	d := Fingerprint("u", []Header{{Name: "X", Values: []string{"1,2"}}}, "", "json")
	assert.NotEqual(t, c, d)
}

func TestKeyGenerator_Prefix(t *testing.T) {
	kg := &KeyGenerator{Prefix: "custom:"}
	assert.True(t, strings.HasPrefix(kg.GenerateKey(Key{URL: "u"}), "custom:"))
}
