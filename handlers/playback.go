package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"linkedsongs/controller"
	"linkedsongs/mapping"
	"linkedsongs/models"
)

func (manager *Manager) ListDevices(c *gin.Context) {
	sess := sessionFrom(c)
	devices, err := spotifyFrom(c).Devices(c.Request.Context())
	if err != nil {
		manager.providerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"devices":     devices,
		"device_id":   sess.DeviceID,
		"device_name": sess.DeviceName,
	})
}

func (manager *Manager) SelectDevice(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess := sessionFrom(c)
	devices, err := spotifyFrom(c).Devices(c.Request.Context())
	if err != nil {
		manager.providerError(c, err)
		return
	}

	for _, d := range devices {
		if d.ID != req.ID {
			continue
		}
		sess.DeviceID = d.ID
		sess.DeviceName = d.Name
		if err := manager.DB.SaveSession(sess); err != nil {
			manager.internalError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"device_id": d.ID, "device_name": d.Name})
		return
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
}

// ensureDevice defaults the session to the first available device.
func (manager *Manager) ensureDevice(c *gin.Context, sess *models.WebSession, api SpotifyAPI) bool {
	if sess.HasDevice() {
		return true
	}

	devices, err := api.Devices(c.Request.Context())
	if err != nil {
		manager.providerError(c, err)
		return false
	}
	if len(devices) == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "open Spotify on a device first"})
		return false
	}

	sess.DeviceID = devices[0].ID
	sess.DeviceName = devices[0].Name
	if err := manager.DB.SaveSession(sess); err != nil {
		manager.internalError(c, err)
		return false
	}
	return true
}

func (manager *Manager) PlayStatus(c *gin.Context) {
	sess := sessionFrom(c)
	resp := gin.H{
		"following":   false,
		"device_name": sess.DeviceName,
		"playlist":    sess.PlaylistName,
	}
	if handle := manager.Controller.Handle(sess.UserID); handle != nil {
		resp["following"] = true
		resp["follower_id"] = handle.ID.String()
		resp["started_at"] = handle.StartedAt
	}
	c.JSON(http.StatusOK, resp)
}

// Play starts playback of the current playlist if needed and starts
// following it with a fresh snapshot of the playlist's songs. A user has one
// follower no matter how many browsers they are signed in from.
func (manager *Manager) Play(c *gin.Context) {
	sess := sessionFrom(c)
	api := spotifyFrom(c)
	if !manager.ensurePlaylist(c, sess, api) || !manager.ensureDevice(c, sess, api) {
		return
	}

	heads, links, err := manager.songs(sess)
	if err != nil {
		manager.internalError(c, err)
		return
	}
	snapshot := mapping.Build(heads, links)

	handle, err := manager.Controller.Start(c.Request.Context(), sess.UserID, sess.ID, api, snapshot, controller.PlaybackTarget{
		DeviceID:   sess.DeviceID,
		ContextURI: sess.PlaylistURI,
	})
	switch {
	case errors.Is(err, controller.ErrPlaybackStart):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "caught_error": true, "following": false})
		return
	case errors.Is(err, controller.ErrShutdown):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "following": false})
		return
	case err != nil:
		manager.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"following":   true,
		"follower_id": handle.ID.String(),
		"started_at":  handle.StartedAt,
		"device_name": sess.DeviceName,
		"playlist":    sess.PlaylistName,
	})
}

// Stop pauses playback when something is playing and stops following. Both
// are no-ops when there is nothing to stop.
func (manager *Manager) Stop(c *gin.Context) {
	sess := sessionFrom(c)
	api := spotifyFrom(c)
	ctx := c.Request.Context()

	resp := gin.H{"following": false}
	active, err := api.PlaybackActive(ctx)
	if err == nil && active {
		err = api.Pause(ctx, sess.DeviceID)
	}
	if err != nil {
		// stop following either way
		resp["caught_error"] = true
		resp["pause_error"] = err.Error()
	}

	resp["stopped"] = manager.Controller.Stop(sess.UserID)
	c.JSON(http.StatusOK, resp)
}
