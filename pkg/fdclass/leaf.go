package fdclass

// Leaf classes for character devices, block devices, sockets and FIFOs.
// Their field-level columns (driver names, socket addresses, pipe peers)
// live outside this core; classification still lands here and the
// generic file chain answers everything these don't.

var CdevClass = Class{
	Name:  "cdev",
	Super: &FileClass,
}

var BdevClass = Class{
	Name:  "bdev",
	Super: &FileClass,
}

var SockClass = Class{
	Name:  "sock",
	Super: &FileClass,
}

var FifoClass = Class{
	Name:  "fifo",
	Super: &FileClass,
}
