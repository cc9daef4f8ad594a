package go_parallel_hash_table

// launchShape is the footprint of one kernel dispatch: how many thread
// groups, and how wide each group is.
type launchShape struct {
	groups          int
	threadsPerGroup int
}

// estimateLaunchShape sizes a dispatch for itemCount work items: groups of
// the widest thread group the device supports, rounded up so every item is
// covered.
func estimateLaunchShape(dev IDevice, itemCount uint32) launchShape {
	threadsPerGroup := dev.MaxThreadsPerGroup()
	groups := (int(itemCount) + threadsPerGroup - 1) / threadsPerGroup
	return launchShape{
		groups:          groups,
		threadsPerGroup: threadsPerGroup,
	}
}

// launch dispatches kernel over itemCount global ids and blocks behind the
// device barrier until every worker has finished.
func launch(dev IDevice, itemCount uint32, kernel func(id uint32)) error {
	if itemCount == 0 {
		return nil
	}

	shape := estimateLaunchShape(dev, itemCount)
	if err := dev.Launch(shape.groups, shape.threadsPerGroup, itemCount, kernel); err != nil {
		return err
	}
	dev.Synchronize()
	return nil
}
