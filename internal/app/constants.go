package app

const (
	Name               = "nostrchat"
	ConfigFilename     = "config.json"
	DBFilename         = "app.db"
	LogFilename        = "app.log"
	RecentMessagesLoad = 200
)
