package main

import "context"

// sweep runs one expiration pass and one reminder dispatch pass, then exits.
func (cli *commandLine) sweep() error {
	ctx := context.Background()

	expired, err := cli.commitmentSvc.ExpireDue(ctx)
	if err != nil {
		return err
	}
	logger.Printf("expiration sweep: %d expired", expired)

	sent, err := cli.reminderSvc.DispatchDue(ctx)
	if err != nil {
		return err
	}
	logger.Printf("reminder dispatch: %d sent", sent)
	return nil
}
