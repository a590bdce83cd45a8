// Package wifi correlates nl80211 scan and MLME notifications with the
// wireless interfaces they concern, resolving each notification into
// the set of visible or connected SSIDs.
package wifi

import "fmt"

// Generic netlink family and multicast groups.
const (
	familyName = "nl80211"

	groupScan = "scan" // TRIGGER_SCAN, NEW_SCAN_RESULTS
	groupMLME = "mlme" // AUTHENTICATE, ASSOCIATE, CONNECT, DISCONNECT, ...
)

// nl80211 commands (enum nl80211_commands).
const (
	cmdGetInterface   = 5
	cmdNewInterface   = 7
	cmdDelInterface   = 8
	cmdGetScan        = 32
	cmdTriggerScan    = 33
	cmdNewScanResults = 34
	cmdScanAborted    = 35
	cmdAuthenticate   = 37
	cmdAssociate      = 38
	cmdDeauthenticate = 39
	cmdDisassociate   = 40
	cmdConnect        = 46
	cmdRoam           = 47
	cmdDisconnect     = 48
)

// nl80211 attributes (enum nl80211_attrs).
const (
	attrIfindex = 3
	attrBSS     = 47
)

// BSS nested attributes (enum nl80211_bss).
const (
	bssInformationElements = 6
	bssStatus              = 9
)

// BSS status values (enum nl80211_bss_status).
const (
	bssStatusAuthenticated = 0
	bssStatusAssociated    = 1
	bssStatusIBSSJoined    = 2
)

// Information element id for the SSID (IEEE 802.11-2016, 9.4.2.2).
const ieSSID = 0

var cmdNames = map[uint8]string{
	cmdGetInterface:   "GET_INTERFACE",
	cmdNewInterface:   "NEW_INTERFACE",
	cmdDelInterface:   "DEL_INTERFACE",
	cmdGetScan:        "GET_SCAN",
	cmdTriggerScan:    "TRIGGER_SCAN",
	cmdNewScanResults: "NEW_SCAN_RESULTS",
	cmdScanAborted:    "SCAN_ABORTED",
	cmdAuthenticate:   "AUTHENTICATE",
	cmdAssociate:      "ASSOCIATE",
	cmdDeauthenticate: "DEAUTHENTICATE",
	cmdDisassociate:   "DISASSOCIATE",
	cmdConnect:        "CONNECT",
	cmdRoam:           "ROAM",
	cmdDisconnect:     "DISCONNECT",
}

// cmdName renders an nl80211 command for events and logs.
func cmdName(cmd uint8) string {
	if name, ok := cmdNames[cmd]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", cmd)
}

// statusName renders a BSS status the way consumers expect it.
func statusName(status uint32) string {
	switch status {
	case bssStatusAssociated:
		return "Connected"
	case bssStatusAuthenticated:
		return "Authenticated"
	case bssStatusIBSSJoined:
		return "Joined"
	default:
		return "no status"
	}
}
