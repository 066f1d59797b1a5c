package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/waterlab-lims-server/internal/domain"
)

// publishAudit offers a committed event to the side-channel sink: the
// external audit store and the dashboard feed. The transactional trail
// row is already written by the repository; side-channel failures are
// logged and swallowed so they never undo a committed operation.
func publishAudit(ctx context.Context, sink domain.AuditSink, log *logrus.Logger, event *domain.AuditEvent) {
	if sink == nil || event == nil {
		return
	}
	if err := sink.Record(ctx, event); err != nil {
		log.WithFields(logrus.Fields{
			"entity":    event.Entity,
			"entity_id": event.EntityID,
			"action":    event.Action,
		}).WithError(err).Warn("Audit side channel record failed")
	}
}
