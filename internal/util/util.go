package util

import (
	"fieldsim/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "fieldsim",
		},
		Modbus: config.ModbusServerConfig{
			ListenURL: "tcp://localhost:5502",
		},
		Sim: config.SimConfig{
			TickMode:           "fixed",
			TickIntervalMillis: 5000,
			Seed:               1,
		},
		Devices: config.DefaultDevices(),
		Port:    8080,
	}
}
