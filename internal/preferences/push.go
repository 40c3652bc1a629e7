// Package preferences sequences changes to settings the server also sees:
// commit locally first, then mirror to the server if a session is running.
package preferences

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Planetworks/DarkMultiPlayer/internal/models"
	"github.com/Planetworks/DarkMultiPlayer/internal/network"
)

// Settings is the part of the settings store the controller mutates.
type Settings interface {
	Get() models.Settings
	Set(upd models.SettingsUpdate) (models.Settings, error)
}

// Controller commits remotely visible preferences and pushes them.
// Each call is one attempt: Pending, then Committed once saved, then
// Skipped, Pushed or PushFailed. Nothing is retried; a later mutation
// starts a fresh attempt.
type Controller struct {
	settings Settings
	gate     network.Gate
	pusher   network.Pusher
}

// New creates a Controller.
func New(settings Settings, gate network.Gate, pusher network.Pusher) *Controller {
	return &Controller{settings: settings, gate: gate, pusher: pusher}
}

// SetPlayerColor stores c and pushes the stored (clamped) value when the
// session is running. If the save fails the attempt stops at Pending and
// nothing is pushed; the in-memory value is still the new colour. A push
// failure never rolls back the local commit.
func (c *Controller) SetPlayerColor(ctx context.Context, color models.Color) models.PushResult {
	res := models.PushResult{ID: uuid.NewString(), State: models.PushPending}
	log := slog.With("attempt", res.ID)

	st, err := c.settings.Set(models.SettingsUpdate{PlayerColor: &color})
	res.Settings = st
	if err != nil {
		log.Warn("preferences: colour not saved, not pushing", "err", err)
		return fail(res, err)
	}
	res.State = models.PushCommitted

	return c.push(ctx, log, res)
}

// Resync pushes the stored colour if the session is running. Reconnection
// handling calls it; a change made while disconnected is not replayed
// otherwise.
func (c *Controller) Resync(ctx context.Context) models.PushResult {
	res := models.PushResult{
		ID:       uuid.NewString(),
		State:    models.PushCommitted,
		Settings: c.settings.Get(),
	}
	return c.push(ctx, slog.With("attempt", res.ID), res)
}

func (c *Controller) push(ctx context.Context, log *slog.Logger, res models.PushResult) models.PushResult {
	if !c.gate.IsRunning() {
		res.State = models.PushSkipped
		log.Debug("preferences: not connected, colour kept local")
		return res
	}

	if err := c.pusher.PushPlayerColor(ctx, res.Settings.PlayerColor); err != nil {
		res.State = models.PushFailed
		log.Warn("preferences: push failed, local value stands", "err", err)
		return fail(res, models.NewNetworkPushError(err))
	}
	res.State = models.PushPushed
	log.Debug("preferences: pushed colour", "color", res.Settings.PlayerColor)
	return res
}

func fail(res models.PushResult, err error) models.PushResult {
	res.Err = err
	res.Error = err.Error()
	return res
}

// IsPersistence reports whether res stopped because the save failed.
func IsPersistence(res models.PushResult) bool {
	return errors.Is(res.Err, models.ErrPersistence)
}
