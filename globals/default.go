package globals

import "github.com/hashicorp/go-hclog"

var AppLogger = hclog.New(&hclog.LoggerOptions{
	Name:  "roomwarden",
	Level: hclog.LevelFromString("INFO"),
})
