package course

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
)

type generator func(rng *rand.Rand) string

var generators = map[string]generator{
	"sales_csv":      salesCSV,
	"markdown":       markdownDoc,
	"currency_rates": currencyRates,
}

func dataURI(mime string, content []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(content))
}

func uniform(rng *rand.Rand, lo, hi float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round((lo+rng.Float64()*(hi-lo))*p) / p
}

func salesCSV(rng *rand.Rand) string {
	lines := []string{"product,sales"}
	for _, p := range []string{"Widget A", "Widget B", "Widget C", "Widget D", "Widget E"} {
		lines = append(lines, fmt.Sprintf("%s,%.2f", p, uniform(rng, 100, 1000, 2)))
	}
	return dataURI("text/csv", []byte(strings.Join(lines, "\n")))
}

const markdownBody = `# %s

This is a sample markdown document generated for testing.

## Features

- **Bold text** for emphasis
- *Italic text* for subtle emphasis
- ` + "`Code snippets`" + ` inline

## Code Block

` + "```python" + `
def hello_world():
    print("Hello, World!")
    return True
` + "```" + `

## Lists

1. First item
2. Second item
3. Third item

## Conclusion

This demonstrates markdown rendering capabilities.
`

func markdownDoc(rng *rand.Rand) string {
	titles := []string{"Introduction", "Overview", "Getting Started", "User Guide"}
	return dataURI("text/markdown", []byte(fmt.Sprintf(markdownBody, titles[rng.IntN(len(titles))])))
}

func currencyRates(rng *rand.Rand) string {
	rates := map[string]float64{
		"USD": 1.0,
		"EUR": uniform(rng, 0.85, 0.95, 4),
		"GBP": uniform(rng, 0.75, 0.85, 4),
		"JPY": uniform(rng, 110, 150, 4),
		"INR": uniform(rng, 70, 85, 4),
	}
	raw, _ := json.MarshalIndent(rates, "", "  ")
	return dataURI("application/json", raw)
}
