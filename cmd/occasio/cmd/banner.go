package cmd

import (
	"fmt"
	"io"
)

const banner = `
   ___                          _       
  / _ \   ___   ___   __ _  ___(_)  ___  
 | | | | / __| / __| / _` + "`" + ` |/ __| | / _ \ 
 | |_| || (__ | (__ | (_| |\__ \ || (_) |
  \___/  \___| \___| \__,_||___/_| \___/ 
                                         
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Booking API development server - Version %s\x1b[0m\n\n", Version)
}
