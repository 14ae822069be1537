package protocol

// MaxBlockCount is the largest job the Start frame can describe.
const MaxBlockCount = 0xFFFF

// Job is one end-to-end print request: the image split into 16-byte blocks
// plus the start-frame parameters derived from it. A Job is built once per
// print call and discarded when the session reaches a terminal state.
type Job struct {
	Blocks [][]byte // each exactly BlockPayloadLen bytes, last one zero-padded
	Copies uint16   // job id / copy count carried in the Start frame's w2
}

// NewJob chunks image bytes into data-frame payloads. The last block is
// zero-padded to 16 bytes when the image does not divide evenly.
func NewJob(image []byte, copies uint16) (*Job, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	count := (len(image) + BlockPayloadLen - 1) / BlockPayloadLen
	if count > MaxBlockCount {
		return nil, ErrImageTooLarge
	}

	blocks := make([][]byte, 0, count)
	for off := 0; off < len(image); off += BlockPayloadLen {
		end := off + BlockPayloadLen
		if end <= len(image) {
			blocks = append(blocks, image[off:end])
			continue
		}
		padded := make([]byte, BlockPayloadLen)
		copy(padded, image[off:])
		blocks = append(blocks, padded)
	}

	if copies == 0 {
		copies = 1
	}
	return &Job{Blocks: blocks, Copies: copies}, nil
}

// BlockCount returns the number of data frames the job will emit.
func (j *Job) BlockCount() uint16 {
	return uint16(len(j.Blocks))
}
