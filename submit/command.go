package submit

import (
	"context"
	"fmt"

	"github.com/bitfsorg/libledger-go/ledger"
	"github.com/bitfsorg/libledger-go/tx"
)

// Command is a request the driver executes. The set of commands is closed.
type Command interface {
	command()
}

// PrepareCommand prepares a transaction.
type PrepareCommand struct{ Request Request }

// SignCommand signs the prepared transaction with the given essence.
type SignCommand struct{ EssenceHash ledger.Digest }

// ImportSignedCommand attaches signatures produced by an offline signer.
type ImportSignedCommand struct{ Signed *tx.SignedTransactionData }

// SubmitCommand posts the signed transaction with the given essence.
type SubmitCommand struct{ EssenceHash ledger.Digest }

// AwaitCommand waits for inclusion of the submitted transaction.
type AwaitCommand struct{ EssenceHash ledger.Digest }

// RunCommand takes a request through every stage.
type RunCommand struct{ Request Request }

// ResumeCommand continues a persisted pipeline.
type ResumeCommand struct{ EssenceHash ledger.Digest }

func (PrepareCommand) command()      {}
func (SignCommand) command()         {}
func (ImportSignedCommand) command() {}
func (SubmitCommand) command()       {}
func (AwaitCommand) command()        {}
func (RunCommand) command()          {}
func (ResumeCommand) command()       {}

// Execute dispatches cmd and returns the pipeline it acted on.
func (d *Driver) Execute(ctx context.Context, cmd Command) (*Pipeline, error) {
	switch c := cmd.(type) {
	case PrepareCommand:
		return d.Prepare(ctx, c.Request)
	case SignCommand:
		return d.onPipeline(c.EssenceHash, func(p *Pipeline) error { return d.Sign(ctx, p) })
	case ImportSignedCommand:
		return d.ImportSigned(c.Signed)
	case SubmitCommand:
		return d.onPipeline(c.EssenceHash, func(p *Pipeline) error { return d.Submit(ctx, p) })
	case AwaitCommand:
		return d.onPipeline(c.EssenceHash, func(p *Pipeline) error { return d.AwaitInclusion(ctx, p) })
	case RunCommand:
		return d.Run(ctx, c.Request)
	case ResumeCommand:
		return d.Resume(ctx, c.EssenceHash)
	case nil:
		return nil, ErrNilParam
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
}

func (d *Driver) onPipeline(h ledger.Digest, step func(*Pipeline) error) (*Pipeline, error) {
	p, err := d.load(h)
	if err != nil {
		return nil, err
	}
	return p, step(p)
}
