package setup

import (
	"github.com/yourflock/roost-autoconfig/internal/epg"
	"github.com/yourflock/roost-autoconfig/internal/settings"
)

// PlaylistName is the merged playlist file under the userdata dir.
const PlaylistName = "iptv_playlist.m3u8"

// SkinSetting is the guisettings.xml id of the active skin.
const SkinSetting = "lookandfeel.skin"

// PVRSettings is the PVR client configuration pointing at the merged
// playlist and the provisioned guide. The playlist is re-read every two
// hours.
func PVRSettings(playlistPath string, guide epg.Guide) settings.Document {
	s := []settings.Setting{
		settings.Int("m3uPathType", 0),
		settings.String("m3uPath", playlistPath),
	}
	if guide.Remote {
		s = append(s,
			settings.Int("epgPathType", 1),
			settings.String("epgUrl", guide.URL),
		)
	} else {
		s = append(s,
			settings.Int("epgPathType", 0),
			settings.String("epgPath", guide.Path),
		)
	}
	s = append(s,
		settings.Bool("m3uCache", true),
		settings.Bool("epgCache", true),
		settings.Int("m3uRefreshMode", 2),
		settings.Int("m3uRefreshIntervalMins", 120),
		settings.Bool("allChannelsGroupsEnabled", true),
	)
	return settings.New(s...)
}

// SkinMenu keeps only the TV, movie and TV show entries on the home menu.
func SkinMenu() settings.Document {
	return settings.New(
		settings.Bool("home.movies", true),
		settings.Bool("home.tvshows", true),
		settings.Bool("home.livetv", true),
		settings.Bool("home.music", false),
		settings.Bool("home.musicvideos", false),
		settings.Bool("home.radio", false),
		settings.Bool("home.pictures", false),
		settings.Bool("home.videos", false),
		settings.Bool("home.weather", false),
		settings.Bool("home.games", false),
	)
}
