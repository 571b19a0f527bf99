package nfc

// FelicaFrame prefixes a FeliCa command with its length byte, which counts
// itself.
func FelicaFrame(cmd []byte) []byte {
	return append([]byte{byte(len(cmd) + 1)}, cmd...)
}

// StripFelicaLength removes the leading length byte of a FeliCa response.
func StripFelicaLength(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	n := int(data[0])
	if n < 1 || n > len(data) {
		return nil, Errorf(ErrCodeInvalidData, "FelicaTransceive", "bad frame length %d for %d bytes", n, len(data))
	}
	return data[1:n], nil
}
