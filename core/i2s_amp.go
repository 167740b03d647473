package core

import "audiofw/protocol"

// GPIOPin is a GPIO number
type GPIOPin uint32

// GPIODriver drives plain digital outputs, here the amplifier enable line
type GPIODriver interface {
	ConfigureOutput(pin GPIOPin) error
	SetPin(pin GPIOPin, value bool) error
}

var gpioDriver GPIODriver

// SetGPIODriver is called by the target at boot
func SetGPIODriver(d GPIODriver) {
	gpioDriver = d
}

func MustGPIO() GPIODriver {
	if gpioDriver == nil {
		panic("GPIO driver not configured")
	}
	return gpioDriver
}

// I2SAmp is the shutdown/enable line of the amplifier fed by an I2S output.
// It is driven active while the output runs and inactive otherwise.
type I2SAmp struct {
	Pin        GPIOPin
	ActiveHigh bool
	on         bool
}

// handleConfigI2SAmp attaches an amplifier enable pin to an output
// Format: config_i2s_amp oid=%c pin=%u active_high=%c
func handleConfigI2SAmp(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	pin, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	activeHigh, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	out, exists := GetI2SOutput(uint8(oid))
	if !exists {
		return nil
	}
	return out.AttachAmp(GPIOPin(pin), activeHigh != 0)
}

// AttachAmp configures the enable pin and sets it to match the output state.
// The pin may not be one of the output's I2S pins.
func (o *I2SOutput) AttachAmp(pin GPIOPin, activeHigh bool) error {
	if o.Pins.Uses(uint32(pin)) {
		return ErrI2SPinConflict
	}
	if err := MustGPIO().ConfigureOutput(pin); err != nil {
		return err
	}
	if o.Amp != nil && o.Amp.Pin != pin {
		o.Amp.set(false)
	}
	o.Amp = &I2SAmp{Pin: pin, ActiveHigh: activeHigh}
	// Force a write so the pin leaves its reset level
	o.Amp.on = !o.Running
	o.Amp.set(o.Running)
	return nil
}

// Enabled reports whether the amplifier is currently switched on
func (a *I2SAmp) Enabled() bool {
	return a != nil && a.on
}

func (a *I2SAmp) set(on bool) {
	if a == nil || a.on == on {
		return
	}
	if err := MustGPIO().SetPin(a.Pin, on == a.ActiveHigh); err != nil {
		DebugPrintln("[I2S] amp pin " + utoa(uint32(a.Pin)) + ": " + err.Error())
		return
	}
	a.on = on
}
