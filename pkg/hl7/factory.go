package hl7

// Factory constructs every container the parser and the assignment path
// create. Embed DefaultFactory to override a single constructor.
type Factory interface {
	NewFile(env Env, batches []Node) *File
	NewBatch(env Env, messages []Node) *Batch
	NewMessage(env Env, segments []Node) *Message
	NewSegment(env Env, fields []Node) *Segment
	NewField(env Env, repetitions []Node) *Field
	NewRepetition(env Env, components []Node) *Repetition
	NewComponent(env Env, subcomponents []Node) *Component
}

// DefaultFactory builds the stock container types.
type DefaultFactory struct{}

func (DefaultFactory) NewFile(env Env, batches []Node) *File {
	return &File{Container: newContainer(LevelFile, env, batches), envelope: fileEnvelope}
}

func (DefaultFactory) NewBatch(env Env, messages []Node) *Batch {
	return &Batch{Container: newContainer(LevelBatch, env, messages), envelope: batchEnvelope}
}

func (DefaultFactory) NewMessage(env Env, segments []Node) *Message {
	return &Message{Container: newContainer(LevelMessage, env, segments)}
}

func (DefaultFactory) NewSegment(env Env, fields []Node) *Segment {
	return &Segment{Container: newContainer(LevelSegment, env, fields)}
}

func (DefaultFactory) NewField(env Env, repetitions []Node) *Field {
	return &Field{Container: newContainer(LevelField, env, repetitions)}
}

func (DefaultFactory) NewRepetition(env Env, components []Node) *Repetition {
	return &Repetition{Container: newContainer(LevelRepetition, env, components)}
}

func (DefaultFactory) NewComponent(env Env, subcomponents []Node) *Component {
	return &Component{Container: newContainer(LevelComponent, env, subcomponents)}
}
