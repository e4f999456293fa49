package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// RankValue is a ranking position as published by the source. Sources mix
// plain integers with labels such as "=12" or "101-150".
type RankValue string

// UnmarshalJSON accepts both JSON numbers and strings.
func (r *RankValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = RankValue(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("rank must be a number or string: %w", err)
	}
	*r = RankValue(n.String())
	return nil
}

// String returns the rank as published.
func (r RankValue) String() string {
	return string(r)
}

// Number returns the first integer found in the rank label.
func (r RankValue) Number() (int, bool) {
	s := string(r)
	start := strings.IndexFunc(s, unicode.IsDigit)
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[start:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// RankingRecord is one university's position in one ranking source.
type RankingRecord struct {
	Source     string    `json:"source"`
	Rank       RankValue `json:"rank"`
	University string    `json:"university"`
	Country    string    `json:"country"`
}

// Text serializes the record the way it is embedded and shown to the model.
func (r RankingRecord) Text() string {
	return fmt.Sprintf("Source: %s, Rank: %s, University: %s, Country: %s", r.Source, r.Rank, r.University, r.Country)
}

// ValidateRankingRecord validates a RankingRecord instance
func ValidateRankingRecord(r RankingRecord) error {
	if strings.TrimSpace(r.Source) == "" {
		return NewDomainErrorWithCause(ErrCodeValidation, ErrInvalidRankingRecord.Message, fmt.Errorf("source is required"))
	}
	if strings.TrimSpace(r.University) == "" {
		return NewDomainErrorWithCause(ErrCodeValidation, ErrInvalidRankingRecord.Message, fmt.Errorf("university is required"))
	}
	if r.Rank == "" {
		return NewDomainErrorWithCause(ErrCodeValidation, ErrInvalidRankingRecord.Message, fmt.Errorf("rank is required"))
	}
	return nil
}

// RankingFile is the ingestion format of one ranking source.
type RankingFile struct {
	Source string          `json:"source"`
	Data   []RankingRecord `json:"data"`
}

// ParseRankingFile decodes a ranking file. Records without their own source
// inherit the file-level source.
func ParseRankingFile(raw []byte) (*RankingFile, error) {
	var f RankingFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, Wrap(ErrInvalidRankingFile, err)
	}
	if f.Data == nil {
		return nil, Wrap(ErrInvalidRankingFile, fmt.Errorf("'data' key not found"))
	}
	for i := range f.Data {
		if f.Data[i].Source == "" {
			f.Data[i].Source = f.Source
		}
	}
	return &f, nil
}
