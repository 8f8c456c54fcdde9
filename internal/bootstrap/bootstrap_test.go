package bootstrap

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/ignite/newsletter-engine/internal/config"
	"github.com/ignite/newsletter-engine/internal/service/analytics"
	"github.com/ignite/newsletter-engine/internal/service/sending"
)

func TestOpenRedis(t *testing.T) {
	client, err := OpenRedis(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, client)

	mr := miniredis.RunT(t)
	client, err = OpenRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer client.Close()
	assert.NotNil(t, client)

	_, err = OpenRedis(context.Background(), "not-a-url")
	assert.Error(t, err)
}

func TestOpenDBRequiresURL(t *testing.T) {
	_, err := OpenDB(context.Background(), appconfig.DatabaseConfig{})
	assert.Error(t, err)
}

func TestNewTracker(t *testing.T) {
	tr, err := NewTracker(appconfig.TrackingConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "<p>x</p>", tr.AddTracking("<p>x</p>", "tok"), "no base url leaves html alone")

	tr, err = NewTracker(appconfig.TrackingConfig{
		BaseURL:      "https://t.example.test",
		SiteURL:      "https://portal.example.test",
		LinkPatterns: analytics.DefaultPatternSpecs(),
	}, nil)
	require.NoError(t, err)
	out := tr.AddTracking(`<a href="https://portal.example.test/groups/1">g</a>`, "tok")
	assert.True(t, strings.Contains(out, "https://t.example.test/track/click/tok?"))
	assert.Contains(t, out, "https://t.example.test/track/pixel/tok")

	_, err = NewTracker(appconfig.TrackingConfig{
		BaseURL:      "https://t.example.test",
		LinkPatterns: []analytics.PatternSpec{{Type: "group", Expr: "("}},
	}, nil)
	assert.Error(t, err)
}

func TestNewDialer(t *testing.T) {
	d, err := NewDialer(context.Background(), appconfig.TransportConfig{Kind: appconfig.TransportSMTP, HelloName: "mx.example.test"})
	require.NoError(t, err)
	assert.Equal(t, sending.SMTPDialer{HelloName: "mx.example.test"}, d)

	d, err = NewDialer(context.Background(), appconfig.TransportConfig{Kind: appconfig.TransportSES, SESRegion: "eu-west-1"})
	require.NoError(t, err)
	assert.IsType(t, sending.SESDialer{}, d)

	_, err = NewDialer(context.Background(), appconfig.TransportConfig{Kind: "fax"})
	assert.Error(t, err)
}
