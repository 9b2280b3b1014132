package taint

// Namer resolves a tag to a human-readable label for graph output.
type Namer interface {
	Name(t Tag) string
}

var labels = [...]string{
	Location:      "Location",
	Contacts:      "Contacts",
	Mic:           "Microphone",
	PhoneNumber:   "Phone Number",
	LocationGPS:   "GPS Location",
	LocationNet:   "Network Location",
	LocationLast:  "Last Known Location",
	Camera:        "Camera",
	Accelerometer: "Accelerometer",
	SMS:           "SMS",
	IMEI:          "IMEI",
	IMSI:          "IMSI",
	ICCID:         "ICCID",
	DeviceSN:      "Device Serial Number",
	Account:       "Account",
	History:       "Browser History",
	IncomingData:  "Incoming Data",
}

type defaultNames struct{}

func (defaultNames) Name(t Tag) string {
	if !t.Valid() {
		return t.String()
	}
	return labels[t]
}

// DefaultNames is the built-in label table.
var DefaultNames Namer = defaultNames{}

// Names overrides labels for selected tags and falls back to DefaultNames.
type Names map[Tag]string

// Name implements Namer.
func (n Names) Name(t Tag) string {
	if label, ok := n[t]; ok && label != "" {
		return label
	}
	return DefaultNames.Name(t)
}
