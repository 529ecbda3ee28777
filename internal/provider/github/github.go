// Package github receives GitHub push webhooks and converts them to
// provider-neutral push events.
package github

import (
	"net/http"

	"github.com/google/go-github/v43/github"
	"go.uber.org/zap"

	"github.com/simplesurance/mergegate/internal/logfields"
	"github.com/simplesurance/mergegate/internal/provider"
	"github.com/simplesurance/mergegate/internal/vcs"
)

const loggerName = "github-event-provider"

// Provider listens for github-webhook http-requests at a http-server
// handler, validates the requests, converts push events and forwards them to
// the event channels.
type Provider struct {
	logger        *zap.Logger
	webhookSecret []byte
	chans         []chan<- *provider.Event
}

type option func(*Provider)

func WithPayloadSecret(secret string) option {
	return func(p *Provider) {
		p.webhookSecret = []byte(secret)
	}
}

func New(eventChans []chan<- *provider.Event, opts ...option) *Provider {
	p := Provider{
		chans: eventChans,
	}

	for _, o := range opts {
		o(&p)
	}

	if p.logger == nil {
		p.logger = zap.L().Named(loggerName)
	}

	return &p
}

func (p *Provider) HTTPHandler(resp http.ResponseWriter, req *http.Request) {
	deliveryID := github.DeliveryID(req)
	hookType := github.WebHookType(req)

	logFields := []zap.Field{
		logfields.EventProvider("github"),
		zap.String("github.delivery_id", deliveryID),
		zap.String("github.webhook_type", hookType),
	}

	logger := p.logger.With(logFields...)

	payload, err := github.ValidatePayload(req, p.webhookSecret)
	if err != nil {
		logger.Info(
			"received invalid http request, payload validation failed",
			logfields.Event("github_http_request_validation_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusBadRequest)
		return
	}

	event, err := github.ParseWebHook(hookType, payload)
	if err != nil {
		logger.Info(
			"received invalid http request, parsing failed",
			logfields.Event("github_event_parsing_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusBadRequest)
		return
	}

	pushEvent, ok := event.(*github.PushEvent)
	if !ok {
		logger.Debug(
			"event is not a push event, ignored",
			logfields.Event("github_event_ignored"),
		)
		resp.WriteHeader(http.StatusOK)
		return
	}

	push, err := toPushEvent(pushEvent)
	if err != nil {
		logger.Warn(
			"ignoring push event with incomplete information",
			logfields.Event("github_event_ignored"),
			zap.Error(err),
		)
		resp.WriteHeader(http.StatusOK)
		return
	}

	ev := provider.Event{
		Provider:   "github",
		DeliveryID: deliveryID,
		EventType:  hookType,
		Push:       push,
		LogFields:  append(logFields, push.LogFields()...),
	}

	for _, ch := range p.chans {
		ch <- &ev
	}

	logger.Debug(
		"push event forwarded",
		logfields.Event("github_event_forwarded"),
	)

	resp.WriteHeader(http.StatusOK)
}

func toPushEvent(ev *github.PushEvent) (*vcs.PushEvent, error) {
	repo, err := vcs.NewRepository(
		ev.GetRepo().GetOwner().GetLogin(),
		ev.GetRepo().GetName(),
	)
	if err != nil {
		return nil, err
	}

	change := vcs.RefChange{
		Branch:     branchRefToName(ev.GetRef()),
		Changesets: toChangesets(ev),
	}

	result := vcs.PushEvent{Repository: repo}

	if ev.GetDeleted() {
		result.Deleted = []vcs.RefChange{change}
		return &result, nil
	}

	result.Changed = []vcs.RefChange{change}

	return &result, nil
}

func toChangesets(ev *github.PushEvent) []vcs.Changeset {
	result := make([]vcs.Changeset, 0, len(ev.Commits))

	for i, commit := range ev.Commits {
		var paths []string
		paths = append(paths, commit.Added...)
		paths = append(paths, commit.Modified...)
		paths = append(paths, commit.Removed...)

		// the webhook payload does not carry parent information, only
		// the first commit of a newly created branch has no parent
		parentCount := 1
		if ev.GetCreated() && i == 0 {
			parentCount = 0
		}

		result = append(result, vcs.Changeset{
			ID:          commit.GetID(),
			ParentCount: parentCount,
			Paths:       paths,
		})
	}

	return result
}

func branchRefToName(ref string) string {
	const prefix = "refs/heads/"

	if len(ref) > len(prefix) && ref[:len(prefix)] == prefix {
		return ref[len(prefix):]
	}

	return ref
}
