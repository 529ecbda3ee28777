// Package logfields defines zap fields that are shared between loggers of
// multiple packages to keep field names consistent.
package logfields

import "go.uber.org/zap"

func Event(val string) zap.Field {
	return zap.String("event", val)
}

func EventProvider(val string) zap.Field {
	return zap.String("event_provider", val)
}

func Repository(val string) zap.Field {
	return zap.String("vcs.repository", val)
}

func PullRequest(val int64) zap.Field {
	return zap.Int64("pull_request.id", val)
}

func SourceBranch(val string) zap.Field {
	return zap.String("pull_request.source_branch", val)
}

func TargetBranch(val string) zap.Field {
	return zap.String("pull_request.target_branch", val)
}

func Branch(val string) zap.Field {
	return zap.String("vcs.branch", val)
}

func Changeset(val string) zap.Field {
	return zap.String("vcs.changeset", val)
}

func PullRequestStatus(val string) zap.Field {
	return zap.String("pull_request.status", val)
}

func Rule(val string) zap.Field {
	return zap.String("workflow.rule", val)
}
