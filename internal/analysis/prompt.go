package analysis

import (
	"fmt"
	"strings"
)

// Input is what the analysis sees of a ticket.
type Input struct {
	Title        string
	Description  string
	CustomerName *string
}

// BuildPrompt renders the instruction sent to the model. The output depends
// only on in.
func BuildPrompt(in Input) string {
	greeting := ""
	if in.CustomerName != nil && strings.TrimSpace(*in.CustomerName) != "" {
		greeting = " by " + strings.TrimSpace(*in.CustomerName)
	}

	return fmt.Sprintf(`You are an expert customer support assistant. Analyze the following customer complaint%s and provide a structured response.

Customer complaint:
Title: %s
Description: %s

Your task:
1. Categorize the complaint into ONE of: billing, technical, feature_request
2. Score the sentiment from 1 (very negative) to 10 (very positive)
3. Determine urgency: high, medium, or low
4. Draft a polite, context-aware response (2-3 paragraphs)

Respond ONLY with valid JSON in this exact format:
{
  "category": "billing|technical|feature_request",
  "sentiment_score": 1-10,
  "urgency": "high|medium|low",
  "draft_response": "Your professional response here..."
}

Guidelines for the draft response:
- Address the customer by their concern
- Show empathy and understanding
- Provide actionable next steps
- Keep it professional but warm
- 2-3 paragraphs maximum

Urgency guidelines:
- HIGH: critical issues, service outages, billing errors, account access problems
- MEDIUM: general technical issues, feature requests, moderate complaints
- LOW: minor questions, feedback, suggestions

Respond with JSON only, no preamble, no markdown, no explanation.`, greeting, in.Title, in.Description)
}
