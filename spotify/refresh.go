package spotify

import (
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// refreshNotifier sits in front of the transport's token source and reports
// each new access token once.
type refreshNotifier struct {
	base      oauth2.TokenSource
	onRefresh func(*oauth2.Token)
	mutex     sync.Mutex
	access    string
}

func (r *refreshNotifier) Token() (*oauth2.Token, error) {
	token, err := r.base.Token()
	if err != nil {
		return nil, err
	}

	r.mutex.Lock()
	changed := token.AccessToken != r.access
	r.access = token.AccessToken
	r.mutex.Unlock()

	if changed {
		r.onRefresh(token)
	}
	return token, nil
}

func notifyRefresh(client *http.Client, token *oauth2.Token, onRefresh func(*oauth2.Token), logger *log.Entry) {
	transport, ok := client.Transport.(*oauth2.Transport)
	if !ok {
		logger.Warnf("Unexpected transport %T, refreshed tokens will not be cached", client.Transport)
		return
	}
	transport.Source = &refreshNotifier{
		base:      transport.Source,
		onRefresh: onRefresh,
		access:    token.AccessToken,
	}
}
