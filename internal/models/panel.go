package models

// Panel is the view shown by a chat host.
type Panel string

// Panels.
const (
	PanelChat     Panel = "chat"
	PanelDebug    Panel = "debug"
	PanelSettings Panel = "settings"
	PanelAddModel Panel = "add-model"
)
