package mac

import "github.com/mchp/mdfu-host/internal/transport"

var (
	_ transport.MAC = (*SerialMAC)(nil)
	_ transport.MAC = (*NetworkMAC)(nil)
)
