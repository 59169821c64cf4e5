package publisher

import "solana-dex-router/internal/domain"

// DefaultTopicPrefix is used when Options.TopicPrefix is empty.
const DefaultTopicPrefix = "events"

// GlobalTopic returns the topic that receives every admitted event.
func GlobalTopic(prefix string) string {
	return prefix + ":all"
}

// ProgramTopic returns the program-scoped topic.
func ProgramTopic(prefix, programID string) string {
	return prefix + ":program:" + programID
}

// AccountTopic returns the account-scoped topic.
func AccountTopic(prefix, account string) string {
	return prefix + ":account:" + account
}

// Topics derives the fan-out topic set for e in delivery order:
// global, program, account. The account topic is omitted when the
// event carries no account.
func Topics(prefix string, e *domain.RawEvent) []string {
	topics := make([]string, 0, 3)
	topics = append(topics, GlobalTopic(prefix), ProgramTopic(prefix, e.ProgramID))
	if e.Account != "" {
		topics = append(topics, AccountTopic(prefix, e.Account))
	}
	return topics
}
