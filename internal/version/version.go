// ABOUTME: Build identity constants for the gateway
// ABOUTME: Used in mDNS advertisement and status reporting
package version

const (
	Version      = "0.3.0"
	Product      = "Aurelay Gateway"
	Manufacturer = "Aurelay Project"
)
