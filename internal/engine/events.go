package engine

import "fmt"

// User-facing texts of the run narrative.
const (
	MsgAllTasksCompleted = "All tasks completed. Shutting down."
	MsgManualShutdown    = "The agent has been manually shutdown."
	MsgBudgetCustomKey   = "This agent has run for the maximum number of loops. To save your wallet, this agent is shutting down. You can configure the number of loops in the advanced settings."
	MsgBudgetDemo        = "We're sorry, because this is a demo, we cannot have our agents running for too long. If you would like to run longer, please provide your own API key in Settings. Shutting down."
	MsgAdditionalTasks   = "ERROR adding additional task(s). It might have been against our model's policies to run them. Continuing."
	MsgTaskMarked        = "Task marked as complete."
	MsgRateLimited       = "Rate limit exceeded. Please slow down."
	MsgExecutionFailed   = "ERROR executing task. The agent cannot continue. Shutting down."

	MsgBootstrapQuota       = "ERROR using your API key. You've exceeded your current quota, please check your plan and billing details."
	MsgBootstrapModelAccess = "ERROR your API key does not have access to the requested model. Check that your account can use it, or pick another model in Settings."
	MsgBootstrapProvider    = "ERROR accessing the model API. Please check your API key or try again later."
	MsgBootstrapRetry       = "ERROR retrieving initial tasks array. Retry, make your goal more clear, or revise your goal such that it is within our model's policies to run. Shutting Down."
)

func executionInfo(task string) string {
	return fmt.Sprintf("Executing %q", task)
}

// ChannelSink forwards events into ch. The send blocks, preserving order.
func ChannelSink(ch chan<- Event) Sink {
	return func(ev Event) { ch <- ev }
}

// MultiSink fans an event out to every non-nil sink, in order.
func MultiSink(sinks ...Sink) Sink {
	return func(ev Event) {
		for _, s := range sinks {
			if s != nil {
				s(ev)
			}
		}
	}
}
