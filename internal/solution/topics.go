// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package solution

import (
	"fmt"
	"strings"
)

// Topic is a preset that opens the dialogue with a canned question.
type Topic struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	Question string `json:"question"`
}

var topics = []Topic{
	{Name: "data-lake", Title: "Data Lake", Question: "How can I build an enterprise data lake on AWS?"},
	{Name: "log-analytics", Title: "Log Analytics", Question: "How can I build a log analytics solution on AWS?"},
}

// Topics lists the presets.
func Topics() []Topic {
	return append([]Topic(nil), topics...)
}

// TopicQuestion returns the opening question for a topic, matched by name
// or title, ignoring case.
func TopicQuestion(topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	for _, t := range topics {
		if strings.EqualFold(topic, t.Name) || strings.EqualFold(topic, t.Title) {
			return t.Question, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
}
