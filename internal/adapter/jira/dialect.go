package jira

import (
	"encoding/base64"

	"jira-timer/internal/domain"
)

// dialect holds everything that differs between Cloud and Data Center.
type dialect struct {
	name       string
	apiVersion string
	searchPath string
	auth       func(conn domain.Connection) string
	comment    func(text string) any
}

var dialects = map[domain.AccountType]dialect{
	domain.AccountCloud: {
		name:       "cloud",
		apiVersion: "3",
		searchPath: "/rest/api/3/search/jql",
		auth: func(conn domain.Connection) string {
			raw := conn.Account.Email + ":" + conn.Token
			return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
		},
		comment: func(text string) any { return newADFDocument(text) },
	},
	domain.AccountDataCenter: {
		name:       "datacenter",
		apiVersion: "2",
		searchPath: "/rest/api/2/search",
		auth: func(conn domain.Connection) string {
			return "Bearer " + conn.Token
		},
		comment: func(text string) any { return text },
	},
}

// dialectFor falls back to Cloud for unknown types, matching how accounts
// are created by default.
func dialectFor(t domain.AccountType) dialect {
	if d, ok := dialects[t]; ok {
		return d
	}
	return dialects[domain.AccountCloud]
}

// adfDocument is the Atlassian Document Format body Cloud requires for comments.
type adfDocument struct {
	Type    string         `json:"type"`
	Version int            `json:"version"`
	Content []adfParagraph `json:"content"`
}

type adfParagraph struct {
	Type    string    `json:"type"`
	Content []adfText `json:"content"`
}

type adfText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func newADFDocument(text string) adfDocument {
	return adfDocument{
		Type:    "doc",
		Version: 1,
		Content: []adfParagraph{{
			Type:    "paragraph",
			Content: []adfText{{Type: "text", Text: text}},
		}},
	}
}
