package monitor

import (
	"fmt"
	"strings"
)

// BuildScreenPlaylist renders ads as an HLS-style playlist a screen player
// loops over. Ads without a file are skipped. An ad with no known duration
// is written with #EXTINF:-1.
func BuildScreenPlaylist(ads []Ad) string {
	var b strings.Builder

	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	b.WriteString(fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", targetDuration(ads)))
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n\n")

	for _, ad := range ads {
		if ad.FileURL == "" {
			continue
		}
		dur := -1
		if ad.DurationSec > 0 {
			dur = ad.DurationSec
		}
		b.WriteString(fmt.Sprintf("#EXTINF:%d,%s\n", dur, playlistTitle(ad.Name)))
		b.WriteString(ad.FileURL)
		b.WriteString("\n")
	}

	b.WriteString("#EXT-X-ENDLIST\n")
	return b.String()
}

// targetDuration is the longest known ad duration, at least 1.
func targetDuration(ads []Ad) int {
	max := 1
	for _, ad := range ads {
		if ad.FileURL != "" && ad.DurationSec > max {
			max = ad.DurationSec
		}
	}
	return max
}

// playlistTitle keeps a name on a single #EXTINF line.
func playlistTitle(name string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(name)
}
