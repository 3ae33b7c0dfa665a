package publish

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LogPublisher only logs what would have been published. It is the default
// mode until relay endpoints are configured.
type LogPublisher struct {
	Platform string
}

func (l LogPublisher) Publish(_ context.Context, req Request) (*Result, error) {
	id := "log-" + uuid.NewString()
	log.WithFields(logrus.Fields{
		"platform":   l.Platform,
		"account_id": req.AccountID,
		"post_id":    id,
		"media":      len(req.MediaURLs),
	}).Infof("Published (log only): %s", req.Content)
	return &Result{ExternalPostID: id}, nil
}
