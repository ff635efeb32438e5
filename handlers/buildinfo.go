package handlers

import "mp4converter/config"

type BuildInfo struct {
	BuildDate    string `json:"buildDate"`
	BuildId      string `json:"buildId"`
	BuildIdShort string `json:"buildIdShort"`
}

func MakeBuildInfo() BuildInfo {
	id := config.GetGitSHA()
	short := id
	if len(short) > 7 && short[0] != '<' {
		short = short[0:7]
	}
	return BuildInfo{
		BuildDate:    config.GetBuildDate(),
		BuildId:      id,
		BuildIdShort: short,
	}
}
