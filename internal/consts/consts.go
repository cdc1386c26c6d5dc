package consts

const (
	CHARGE    = 1.6021918e-19 // Elementary charge (C)
	BOLTZMANN = 1.3806226e-23 // Boltzmann constant (J/K)
	KELVIN    = 273.15        // Kelvin temperature (K)
	ROOMTEMP  = 300.15        // 27degC
)

const (
	SupplyVoltage    = 5.0     // Logic supply (V)
	PullupResistance = 20e3    // Internal pull-up (Ohm)
	PWMFrequency     = 490.0   // Default analogWrite carrier (Hz)
	PWMFrequencyFast = 980.0   // Carrier on timer0 pins (Hz)
	ADCResolution    = 1023    // analogRead full scale
	PWMResolution    = 255     // analogWrite full scale
	SerialBuffer     = 64      // Hardware serial ring size (bytes)
	MinBaud          = 300     // Slowest UART setting
	MaxBaud          = 2000000 // Fastest UART setting
)
