// Package influxdb exports sensor readings to InfluxDB v2.
//
// Every available numeric sensor value the registry applies becomes one
// point in the sensor_readings measurement, tagged mac, kind and
// device_kind, with a single float field named value. The export is
// write-only: nothing is read back.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	unsubscribe := reg.Subscribe(client.HandleEvent)
//	defer unsubscribe()
//
// Writes are non-blocking and batched per batch_size and flush_interval.
// Batch failures arrive asynchronously through SetOnError.
package influxdb
