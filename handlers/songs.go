package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"linkedsongs/applemusic"
	"linkedsongs/database"
	"linkedsongs/models"
	"linkedsongs/spotify"
)

type searchRequest struct {
	Query string `json:"query" binding:"required"`
}

type trackRequest struct {
	URI string `json:"uri" binding:"required"`
}

type selectRequest struct {
	ID string `json:"id" binding:"required"`
}

func (manager *Manager) ListPlaylists(c *gin.Context) {
	sess := sessionFrom(c)
	playlists, err := spotifyFrom(c).Playlists(c.Request.Context())
	if err != nil {
		manager.providerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"playlists": playlists,
		"current":   sess.PlaylistID,
	})
}

// SelectPlaylist switches the session to another of the user's playlists.
// A running follower keeps the mapping it was started with.
func (manager *Manager) SelectPlaylist(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess := sessionFrom(c)
	playlists, err := spotifyFrom(c).Playlists(c.Request.Context())
	if err != nil {
		manager.providerError(c, err)
		return
	}

	for _, p := range playlists {
		if p.ID != req.ID {
			continue
		}
		sess.PlaylistName = p.Name
		sess.PlaylistID = p.ID
		sess.PlaylistURI = p.URI
		if err := manager.DB.SaveSession(sess); err != nil {
			manager.internalError(c, err)
			return
		}
		manager.logger.Debugf("session %s switched to playlist %s", sess.ID, p.Name)
		c.JSON(http.StatusOK, gin.H{"playlist": p})
		return
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "playlist not found"})
}

func (manager *Manager) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tracks, err := spotifyFrom(c).Search(c.Request.Context(), req.Query)
	if err != nil {
		manager.providerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"songs": tracks})
}

// lookupTrack validates the requested URI and fetches its title and artist.
func (manager *Manager) lookupTrack(c *gin.Context) (*spotify.TrackInfo, bool) {
	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	if applemusic.IsAppleMusicURL(req.URI) {
		return manager.lookupAppleMusic(c, req.URI)
	}
	uri, err := spotify.TrackURI(req.URI)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	track, err := spotifyFrom(c).GetTrack(c.Request.Context(), uri)
	if err != nil {
		manager.providerError(c, err)
		return nil, false
	}
	return track, true
}

// lookupAppleMusic reads the song's title and artist off its Apple Music page
// and takes the best Spotify search match for them.
func (manager *Manager) lookupAppleMusic(c *gin.Context, rawURL string) (*spotify.TrackInfo, bool) {
	link, err := applemusic.ParseTrackURL(rawURL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	song, err := manager.AppleMusic.Lookup(c.Request.Context(), link)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not read the Apple Music page"})
		return nil, false
	}

	tracks, err := spotifyFrom(c).Search(c.Request.Context(), song.Query())
	if err != nil {
		manager.providerError(c, err)
		return nil, false
	}
	if len(tracks) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("'%s' by %s is not on Spotify", song.Title, song.Artist)})
		return nil, false
	}
	return &tracks[0], true
}

// AddHead attaches a track to the current playlist as a head song and moves
// it to the end of the Spotify playlist.
func (manager *Manager) AddHead(c *gin.Context) {
	sess := sessionFrom(c)
	api := spotifyFrom(c)
	if !manager.ensurePlaylist(c, sess, api) {
		return
	}

	track, ok := manager.lookupTrack(c)
	if !ok {
		return
	}

	number, err := manager.DB.AddHeadSong(models.HeadSong{
		URI:      track.URI,
		Title:    track.Title,
		Artist:   track.Artist,
		UserID:   sess.UserID,
		Playlist: sess.PlaylistName,
	})
	if errors.Is(err, database.ErrDuplicateHeadSong) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "duplicate": true})
		return
	}
	if err != nil {
		manager.internalError(c, err)
		return
	}

	resp := gin.H{"head_number": number, "song": track}
	if err := api.MoveToEnd(c.Request.Context(), sess.PlaylistID, track.URI); err != nil {
		resp["playlist_error"] = err.Error()
	}
	c.JSON(http.StatusCreated, resp)
}

// DeleteHead removes a head song with all of its links, and takes the track
// out of the Spotify playlist.
func (manager *Manager) DeleteHead(c *gin.Context) {
	number, ok := numberParam(c)
	if !ok {
		return
	}
	sess := sessionFrom(c)

	song, err := manager.DB.DeleteHeadSong(sess.UserID, number)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "head song not found"})
		return
	}
	if err != nil {
		manager.internalError(c, err)
		return
	}

	resp := gin.H{"deleted": song}
	// the playlist ID is only known for the session's current playlist
	if song.Playlist == sess.PlaylistName && sess.PlaylistID != "" {
		if err := spotifyFrom(c).RemoveFromPlaylist(c.Request.Context(), sess.PlaylistID, song.URI); err != nil {
			resp["playlist_error"] = err.Error()
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (manager *Manager) AddLink(c *gin.Context) {
	headNumber, ok := numberParam(c)
	if !ok {
		return
	}
	sess := sessionFrom(c)
	if !manager.ensurePlaylist(c, sess, spotifyFrom(c)) {
		return
	}

	track, ok := manager.lookupTrack(c)
	if !ok {
		return
	}

	number, err := manager.DB.AddLinkSong(models.LinkSong{
		URI:        track.URI,
		Title:      track.Title,
		Artist:     track.Artist,
		UserID:     sess.UserID,
		HeadNumber: headNumber,
		Playlist:   sess.PlaylistName,
	})
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "head song not found in the current playlist"})
		return
	}
	if err != nil {
		manager.internalError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"link_number": number, "head_number": headNumber, "song": track})
}

func (manager *Manager) DeleteLink(c *gin.Context) {
	number, ok := numberParam(c)
	if !ok {
		return
	}
	sess := sessionFrom(c)

	err := manager.DB.DeleteLinkSong(sess.UserID, number)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "link song not found"})
		return
	}
	if err != nil {
		manager.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": number})
}

func numberParam(c *gin.Context) (int64, bool) {
	number, err := strconv.ParseInt(c.Param("number"), 10, 64)
	if err != nil || number <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid song number"})
		return 0, false
	}
	return number, true
}
