// Package mocks provides shared test doubles for the stores and vendor
// clients.
//
// MemoryStore implements the task, account and tenant stores in memory with
// the same transition and lease guarantees as the Postgres stores, plus
// hooks that let a test fail or observe individual store calls. MockSession
// uses function fields per method:
//
//	session := &mocks.MockSession{
//	    SubmitFn: func(ctx context.Context, token string, req studio.SubmitRequest) (string, error) {
//	        return "", &studio.RejectedError{Code: 1003, Message: "insufficient credits"}
//	    },
//	}
//
// TestifyMockSpeaker is a testify mock for the text-to-speech client.
package mocks
