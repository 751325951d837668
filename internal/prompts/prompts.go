// Package prompts holds the system prompts and prompt builders used across
// the research pipeline.
package prompts

import (
	"fmt"
	"strings"
)

// System prompts for the different LLM roles.
const (
	AgenticSystem = "You are a research assistant. Your job is to extract, quote, and synthesize as much information as possible from the provided sources. " +
		"Be exhaustive, detailed, and reference the sources directly. Do not summarize unless explicitly asked. " +
		"Err on the side of including more information, not less."

	FinalSynthesisSystem = "You are a research synthesis agent. Your job is to combine all the information from the previous answers into a single, comprehensive, detailed, and referenced Markdown document. " +
		"Err on the side of verbosity and coverage. Include all relevant details, quotes, and references from the answers. Do not summarize unless explicitly asked."

	SlugSystem = "You are a filename/slug generator. Given a user research question, generate a short, lowercase, underscore-separated folder name " +
		"(max 60 chars, no special chars, no spaces, no numbers unless in the query, no stopwords, always deterministic for the same input). " +
		"Output ONLY the slug, nothing else."

	QueryDiversificationSystem = "You are a search query diversification agent."
)

// Iteration builds the per-iteration answering prompt from the search query
// and the aggregated source text.
func Iteration(query, sourcesText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Using the following sources, answer the question: %s\n\n", query)
	fmt.Fprintf(&b, "SOURCES:\n\n%s\n\n", sourcesText)
	b.WriteString("Instructions:\n")
	b.WriteString("- Extract and include as much relevant information as possible.\n")
	b.WriteString("- Quote and reference the sources liberally.\n")
	b.WriteString("- Organize the answer in sections or bullet points if helpful.\n")
	b.WriteString("- Do NOT summarize or omit details unless they are clearly irrelevant.\n")
	b.WriteString("- The answer should be comprehensive, detailed, and full of references/quotes from the sources.\n")
	return b.String()
}

// FinalSynthesis builds the closing prompt that folds every iteration answer
// into one document.
func FinalSynthesis(question string, answers []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Given the user question: '%s', and the following several answers from different search and scrape iterations, ", question)
	b.WriteString("write a comprehensive, referenced Markdown answer that synthesizes all the information, cites sources, and is suitable for a technical audience.\n\n")
	b.WriteString("Instructions:\n")
	b.WriteString("- Be exhaustive and detailed.\n")
	b.WriteString("- Quote and reference the sources liberally.\n")
	b.WriteString("- Organize the answer in sections or bullet points if helpful.\n")
	b.WriteString("- Do NOT summarize or omit details unless they are clearly irrelevant.\n")
	b.WriteString("- The answer should be comprehensive, detailed, and full of references/quotes from the answers.\n\n")
	for i, a := range answers {
		fmt.Fprintf(&b, "Answer %d:\n%s\n", i+1, a)
		if i < len(answers)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// QueryGeneration asks for n diverse, non-overlapping search queries.
func QueryGeneration(question string, n int) string {
	return fmt.Sprintf("Given the user question: '%s', generate a list of %d unique, diverse, and non-overlapping search queries that, together, will maximize the coverage of relevant information. "+
		"Each query should be different in focus, keywords, or angle, but all should be relevant to the user question. Output only the list, one per line.", question, n)
}

// SlugRequest wraps the question for the slug generator.
func SlugRequest(question string) string {
	return "User question: " + question
}
