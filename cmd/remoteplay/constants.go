package main

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_KEY = 0x01

	KEY_ESC          = 1
	KEY_P            = 25
	KEY_A            = 30
	KEY_F            = 33
	KEY_N            = 49
	KEY_M            = 50
	KEY_SPACE        = 57
	KEY_MUTE         = 113
	KEY_NEXTSONG     = 163
	KEY_PLAYPAUSE    = 164
	KEY_PREVIOUSSONG = 165
	KEY_STOPCD       = 166
	KEY_PLAYCD       = 200
	KEY_PAUSECD      = 201
)

// Input event value for a key press; releases (0) and autorepeat (2) are ignored.
const evValuePress = 1
