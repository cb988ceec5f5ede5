// Package device provides the BLE device registry.
//
// The registry is the tracker's view of the host's known devices: which
// BLE identifiers exist and whether each one is opted in to tracking. It is
// seeded from a Home Assistant style known_devices.yaml, persisted in the
// ble_devices table, and cached in memory for the tracker's startup load.
// Sightings of tracked devices are stored in ble_sightings.
//
// # Key Types
//
//   - KnownDevice: a registry entry (MAC such as BLE_IBC_..., name, track flag)
//   - Sighting: last-seen state for one composite device id
//   - Repository / SQLiteRepository: persistence
//   - Registry: cache over the repository
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//
//	known, err := device.LoadKnownDevicesFile("known_devices.yaml")
//	if err != nil {
//	    return err
//	}
//	// Entries not in known are deleted and the cache is reloaded.
//	if _, err := registry.Seed(ctx, known); err != nil {
//	    return err
//	}
package device
