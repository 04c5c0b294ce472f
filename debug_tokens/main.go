package main

import (
	"fmt"
	"os"

	"vshort-bypass/client"
)

// Runs token extraction against a saved landing page, e.g. one captured
// with "curl -o landing.html https://vshort.xyz/<id>".
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: debug_tokens <landing.html>")
		os.Exit(2)
	}

	body, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %s (%d bytes)\n", os.Args[1], len(body))

	t := client.ExtractTokens(string(body))
	fmt.Printf("  %-18s = %q\n", client.FieldCSRFToken, t.CSRFToken)
	fmt.Printf("  %-18s = %q\n", client.FieldAdFormData, t.AdFormData)
	fmt.Printf("  %-18s = %q\n", client.FieldTokenFields, t.TokenFields)
	fmt.Printf("  %-18s = %q\n", client.FieldTokenUnlocked, t.TokenUnlocked)

	if t.AdFormData == "" {
		fmt.Println("❌ ad_form_data not found, the POST would be skipped")
		return
	}
	fmt.Println("✅ Payload:", t.Form())
}
