package utils

import (
	"testing"
)

func BenchmarkNormalizeURL(b *testing.B) {
	url := "https://Example.COM:443/lawyers/search?sort=name&page=17&area=corporate#results"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := NormalizeURL(url); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRecordFingerprint(b *testing.B) {
	record := map[string]interface{}{
		"name":       "Jane Cooper",
		"title":      "Senior Partner",
		"location":   "Riyadh",
		"email":      "jane.cooper@example.com",
		"areas":      []interface{}{"Corporate", "Litigation", "Arbitration"},
		"admissions": "Saudi Bar Association, 2011",
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		RecordFingerprint(record)
	}
}

func BenchmarkSanitizeFieldName(b *testing.B) {
	for i := 0; i < b.N; i++ {
		SanitizeFieldName("practice areas & sectors (2024)")
	}
}
