package nlp

import (
	"testing"

	"github.com/forkchat/forkchat/internal/models"
	"github.com/stretchr/testify/require"
)

func TestExtractFactsName(t *testing.T) {
	cases := map[string]string{
		"Hi, my name is Ada.":                   "Ada",
		"my name is Ada Lovelace, nice to meet": "Ada Lovelace",
		"I'm called Grace":                      "Grace",
		"call me Linus!":                        "Linus",
		"what a nice day":                       "",
	}
	for text, want := range cases {
		require.Equal(t, want, ExtractFacts(text).Name, "input: %q", text)
	}
}

func TestExtractFactsLocation(t *testing.T) {
	cases := map[string]string{
		"I live in London.":            "London",
		"i'm from New York, actually":  "New York",
		"I come from Lyon":             "Lyon",
		"let's talk about living well": "",
	}
	for text, want := range cases {
		require.Equal(t, want, ExtractFacts(text).Location, "input: %q", text)
	}
}

func TestExtractFactsAge(t *testing.T) {
	require.Equal(t, "36", ExtractFacts("I'm 36 years old").Age)
	require.Equal(t, "7", ExtractFacts("i am 7").Age)
	require.Equal(t, "", ExtractFacts("I ran 36 kilometers").Age)
}

func TestExtractFactsEmail(t *testing.T) {
	require.Equal(t, "ada@example.com", ExtractFacts("reach me at ada@example.com please").Email)
	require.Equal(t, "", ExtractFacts("no address here").Email)
}

func TestExtractFactsCombined(t *testing.T) {
	facts := ExtractFacts("Hello! My name is Ada and I live in London. I'm 36 years old.")
	require.Equal(t, "Ada", facts.Name)
	require.Equal(t, "London", facts.Location)
	require.Equal(t, "36", facts.Age)
}

func TestContextFragment(t *testing.T) {
	require.Equal(t, "", ContextFragment(nil))
	require.Equal(t, "", ContextFragment(&models.UserFacts{}))

	fragment := ContextFragment(&models.UserFacts{Name: "Ada", Location: "London"})
	require.Equal(t, "Known user details: name: Ada, location: London\n", fragment)
}
